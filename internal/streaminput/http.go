// Package streaminput provides the reference hls.StreamInput implementation
// used by the sample CLI: local files via os.ReadFile, http(s):// URLs via
// net/http. It is not part of the demuxer/orchestrator core — a host
// embedding the core is expected to supply its own capability, typically
// backed by whatever async I/O runtime it already has.
package streaminput

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/zsiec/tsdemux/internal/hls"
)

type resource struct {
	data    []byte
	readPos int
}

type requestOutcome struct {
	result hls.PollResult
	res    hls.ResourceHandle
}

// HTTPFile implements hls.StreamInput by fetching each Open call to
// completion synchronously (a plain os.ReadFile or http.Get) before
// returning, then reporting it as already-complete on the first Poll. This
// is legitimate for the boundary it sits at — the host, not the cooperative
// core — where a one-shot CLI has no reason to overlap its own I/O; the
// core it feeds still only ever sees a poll-shaped contract.
type HTTPFile struct {
	ctx    context.Context
	client *http.Client

	mu         sync.Mutex
	nextHandle uint32
	resources  map[hls.ResourceHandle]*resource
	outcomes   map[hls.RequestHandle]requestOutcome
}

// New creates an HTTPFile input using ctx for any HTTP requests it issues.
func New(ctx context.Context) *HTTPFile {
	return &HTTPFile{
		ctx:       ctx,
		client:    http.DefaultClient,
		resources: make(map[hls.ResourceHandle]*resource),
		outcomes:  make(map[hls.RequestHandle]requestOutcome),
	}
}

func (h *HTTPFile) allocHandle() uint32 {
	h.nextHandle++
	return h.nextHandle
}

func (h *HTTPFile) fetch(url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(url)
}

// Open implements hls.StreamInput.
func (h *HTTPFile) Open(url string) hls.RequestHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.fetch(url)
	req := hls.RequestHandle(h.allocHandle())
	if err != nil {
		h.outcomes[req] = requestOutcome{result: hls.PollError}
		return req
	}
	resHandle := hls.ResourceHandle(h.allocHandle())
	h.resources[resHandle] = &resource{data: data}
	h.outcomes[req] = requestOutcome{result: hls.PollComplete, res: resHandle}
	return req
}

// Size implements hls.StreamInput.
func (h *HTTPFile) Size(res hls.ResourceHandle) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.resources[res]
	if !ok {
		return -1
	}
	return int64(len(r.data))
}

// Read implements hls.StreamInput, copying up to len(dst) bytes from the
// resource's current read position.
func (h *HTTPFile) Read(res hls.ResourceHandle, dst []byte) hls.RequestHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	req := hls.RequestHandle(h.allocHandle())
	r, ok := h.resources[res]
	if !ok {
		h.outcomes[req] = requestOutcome{result: hls.PollError}
		return req
	}
	n := copy(dst, r.data[r.readPos:])
	r.readPos += n
	h.outcomes[req] = requestOutcome{result: hls.PollComplete, res: res}
	return req
}

// Close implements hls.StreamInput.
func (h *HTTPFile) Close(res hls.ResourceHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.resources, res)
}

// Poll implements hls.StreamInput. Every outcome was already determined at
// Open/Read time, so this only ever reports Invalid (unknown handle) or the
// stored outcome, consuming it so a stale handle polled twice reports
// Invalid on the second call.
func (h *HTTPFile) Poll(req hls.RequestHandle) (hls.PollResult, hls.ResourceHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	outcome, ok := h.outcomes[req]
	if !ok {
		return hls.PollInvalid, 0
	}
	delete(h.outcomes, req)
	return outcome.result, outcome.res
}
