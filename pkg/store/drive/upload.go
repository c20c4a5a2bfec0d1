// Content uploads: single-shot multipart for small content, resumable
// chunked sessions for large content. Failed or cancelled sessions are
// explicitly cancelled so no partial object becomes visible.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/store"
)

// Upload writes content per the spec. Content at or below the resumable
// threshold goes up in a single multipart request; anything larger uses a
// resumable session uploaded in chunks.
func (d *DriveStore) Upload(ctx context.Context, spec store.UploadSpec) (store.Object, error) {
	if spec.Content == nil {
		return store.Object{}, fmt.Errorf("upload: content reader is required")
	}
	if spec.ExistingID == "" && (spec.ParentID == "" || spec.Name == "") {
		return store.Object{}, fmt.Errorf("upload: parent and name are required to create an object")
	}

	if spec.Size <= d.resumableMin {
		return d.uploadMultipart(ctx, spec)
	}
	return d.uploadResumable(ctx, spec)
}

// uploadTarget returns the method and URL for the upload request: POST to
// create, PATCH on the existing ID to replace content.
func (d *DriveStore) uploadTarget(spec store.UploadSpec, uploadType string) (method, u string) {
	params := url.Values{}
	params.Set("uploadType", uploadType)
	params.Set("fields", objectFields)

	if spec.ExistingID != "" {
		return "PATCH", d.uploadBaseURL + "/files/" + url.PathEscape(spec.ExistingID) + "?" + params.Encode()
	}
	return "POST", d.uploadBaseURL + "/files?" + params.Encode()
}

// uploadMetadata builds the JSON metadata part for the upload.
func uploadMetadata(spec store.UploadSpec) fileResource {
	if spec.ExistingID != "" {
		return fileResource{}
	}
	return fileResource{
		Name:    spec.Name,
		Parents: []string{spec.ParentID},
	}
}

// uploadMultipart performs a single-shot multipart/related upload.
//
// The content is buffered in memory first so the request body can be rebuilt
// if the retry loop re-issues it; callers keep this path under the resumable
// threshold.
func (d *DriveStore) uploadMultipart(ctx context.Context, spec store.UploadSpec) (store.Object, error) {
	content, err := io.ReadAll(spec.Content)
	if err != nil {
		return store.Object{}, fmt.Errorf("upload %q: read content: %w", spec.Name, err)
	}
	if int64(len(content)) != spec.Size {
		return store.Object{}, fmt.Errorf("upload %q: content is %d bytes, spec says %d", spec.Name, len(content), spec.Size)
	}

	meta, err := json.Marshal(uploadMetadata(spec))
	if err != nil {
		return store.Object{}, err
	}

	// The boundary must be stable across retries, so build the full body
	// once and replay it from memory.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return store.Object{}, err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return store.Object{}, err
	}

	dataPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/octet-stream"},
	})
	if err != nil {
		return store.Object{}, err
	}
	if _, err := dataPart.Write(content); err != nil {
		return store.Object{}, err
	}
	if err := mw.Close(); err != nil {
		return store.Object{}, err
	}

	method, target := d.uploadTarget(spec, "multipart")

	var res fileResource
	err = d.doJSON(ctx, "Upload", request{
		method:      method,
		url:         target,
		contentType: "multipart/related; boundary=" + mw.Boundary(),
		body: func() (io.Reader, error) {
			return bytes.NewReader(buf.Bytes()), nil
		},
	}, &res)
	if err != nil {
		return store.Object{}, fmt.Errorf("upload %q: %w", spec.Name, err)
	}

	d.metrics.RecordBytes("upload", int64(len(content)))
	return toObject(res), nil
}

// uploadResumable starts a resumable session and streams the content in
// chunks. If anything fails after the session started, the session is
// cancelled before returning so the store discards the received bytes.
func (d *DriveStore) uploadResumable(ctx context.Context, spec store.UploadSpec) (obj store.Object, err error) {
	sessionURL, err := d.startSession(ctx, spec)
	if err != nil {
		return store.Object{}, err
	}

	defer func() {
		if err != nil {
			d.cancelSession(sessionURL)
		}
	}()

	chunk := make([]byte, d.chunkSize)
	var offset int64

	for offset < spec.Size {
		if err = ctx.Err(); err != nil {
			return store.Object{}, err
		}

		want := d.chunkSize
		if remaining := spec.Size - offset; remaining < want {
			want = remaining
		}

		n, readErr := io.ReadFull(spec.Content, chunk[:want])
		if readErr != nil {
			return store.Object{}, fmt.Errorf("upload %q: read content at %d: %w", spec.Name, offset, readErr)
		}

		res, done, chunkErr := d.sendChunk(ctx, sessionURL, chunk[:n], offset, spec.Size)
		if chunkErr != nil {
			return store.Object{}, fmt.Errorf("upload %q: chunk at %d: %w", spec.Name, offset, chunkErr)
		}

		d.metrics.RecordBytes("upload", int64(n))
		offset += int64(n)

		if done {
			if offset != spec.Size {
				return store.Object{}, fmt.Errorf("upload %q: store finalized at %d of %d bytes: %w",
					spec.Name, offset, spec.Size, store.ErrConflict)
			}
			return toObject(res), nil
		}
	}

	return store.Object{}, fmt.Errorf("upload %q: session never finalized: %w", spec.Name, store.ErrTransient)
}

// startSession opens a resumable upload session and returns its URL.
func (d *DriveStore) startSession(ctx context.Context, spec store.UploadSpec) (string, error) {
	method, target := d.uploadTarget(spec, "resumable")

	header := http.Header{}
	header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", spec.Size))

	resp, err := d.do(ctx, "UploadStart", request{
		method:      method,
		url:         target,
		contentType: "application/json; charset=UTF-8",
		header:      header,
		body:        jsonBody(uploadMetadata(spec)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %q: start session: %w", spec.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", fmt.Errorf("upload %q: store returned no session URL: %w", spec.Name, store.ErrTransient)
	}
	return sessionURL, nil
}

// sendChunk PUTs one chunk to the session URL.
//
// Returns done=true with the final object resource when the store finalized
// the upload (last chunk), done=false on the intermediate 308 response.
// Transient failures re-send the same chunk with backoff.
func (d *DriveStore) sendChunk(ctx context.Context, sessionURL string, chunk []byte, offset, total int64) (fileResource, bool, error) {
	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, total))

	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		resp, err := d.sendChunkOnce(ctx, sessionURL, header, chunk)
		if err == nil {
			if resp.StatusCode == 308 {
				// Resume Incomplete: the store acknowledged the chunk.
				_ = resp.Body.Close()
				return fileResource{}, false, nil
			}

			var res fileResource
			decodeErr := json.NewDecoder(resp.Body).Decode(&res)
			_ = resp.Body.Close()
			if decodeErr != nil {
				return fileResource{}, false, fmt.Errorf("decode final upload response: %w", decodeErr)
			}
			return res, true, nil
		}

		if !store.IsRetryable(err) || attempt >= d.maxRetries {
			return fileResource{}, false, err
		}

		d.metrics.ObserveRetry("UploadChunk")

		select {
		case <-ctx.Done():
			return fileResource{}, false, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 32*time.Second {
			backoff *= 2
		}
	}
}

// sendChunkOnce issues a single chunk PUT. 2xx and 308 are success from the
// transport's point of view; everything else is classified.
func (d *DriveStore) sendChunkOnce(ctx context.Context, sessionURL string, header http.Header, chunk []byte) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := d.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch credential: %w: %v", store.ErrUnauthorized, err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, store.ErrTransient)
	}

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == 308 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	return nil, classifyResponse(resp)
}

// cancelSession aborts an in-progress resumable session so the store
// discards any bytes it received. Uses a fresh context: cancellation must
// run even when the original context is already cancelled.
func (d *DriveStore) cancelSession(sessionURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "DELETE", sessionURL, nil)
	if err != nil {
		return
	}
	if token, tokenErr := d.tokens.Token(); tokenErr == nil {
		token.SetAuthHeader(req)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		logger.Warn("failed to cancel upload session: %v", err)
		return
	}
	_ = resp.Body.Close()
	logger.Debug("cancelled resumable upload session")
}
