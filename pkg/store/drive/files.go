// Metadata operations: listing, lookup, folder creation, rename, delete.
package drive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/drivebridge/pkg/store"
)

// fileResource is the API's JSON representation of one object.
// Size is a decimal string on the wire.
type fileResource struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType,omitempty"`
	Size         string   `json:"size,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	MD5Checksum  string   `json:"md5Checksum,omitempty"`
}

// fileList is the response envelope for listing calls.
type fileList struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// toObject converts a wire resource into the store data model.
func toObject(r fileResource) store.Object {
	obj := store.Object{
		ID:          r.ID,
		Name:        r.Name,
		ParentIDs:   r.Parents,
		IsDir:       r.MimeType == store.FolderMIMEType,
		ContentHash: r.MD5Checksum,
		MIMEType:    r.MimeType,
	}
	if r.Size != "" {
		if size, err := strconv.ParseInt(r.Size, 10, 64); err == nil {
			obj.Size = size
		}
	}
	if r.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, r.ModifiedTime); err == nil {
			obj.ModifiedTime = t
		}
	}
	return obj
}

// escapeQuery escapes a value for embedding in an API query expression.
// Backslashes first, then single quotes.
func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

// ListChildren returns all direct children of the given folder, following
// pagination. Trashed objects are excluded.
func (d *DriveStore) ListChildren(ctx context.Context, parentID string) ([]store.Object, error) {
	var children []store.Object
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(parentID)))
		params.Set("fields", "nextPageToken,files("+objectFields+")")
		params.Set("pageSize", "1000")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page fileList
		err := d.doJSON(ctx, "ListChildren", request{
			method: "GET",
			url:    d.filesURL("/files", params),
		}, &page)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", parentID, err)
		}

		for _, f := range page.Files {
			children = append(children, toObject(f))
		}

		if page.NextPageToken == "" {
			return children, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetObject fetches current metadata for one object.
func (d *DriveStore) GetObject(ctx context.Context, id string) (store.Object, error) {
	params := url.Values{}
	params.Set("fields", objectFields)

	var res fileResource
	err := d.doJSON(ctx, "GetObject", request{
		method: "GET",
		url:    d.filesURL("/files/"+url.PathEscape(id), params),
	}, &res)
	if err != nil {
		return store.Object{}, fmt.Errorf("get %s: %w", id, err)
	}
	return toObject(res), nil
}

// CreateFolder creates an empty folder named name under parentID.
func (d *DriveStore) CreateFolder(ctx context.Context, parentID, name string) (store.Object, error) {
	params := url.Values{}
	params.Set("fields", objectFields)

	body := fileResource{
		Name:     name,
		MimeType: store.FolderMIMEType,
		Parents:  []string{parentID},
	}

	var res fileResource
	err := d.doJSON(ctx, "CreateFolder", request{
		method:      "POST",
		url:         d.filesURL("/files", params),
		contentType: "application/json",
		body:        jsonBody(body),
	}, &res)
	if err != nil {
		return store.Object{}, fmt.Errorf("create folder %q under %s: %w", name, parentID, err)
	}
	return toObject(res), nil
}

// Rename updates the object's display name and, when the parent IDs differ,
// moves it between parents. Name and parent change travel in one metadata
// update call.
func (d *DriveStore) Rename(ctx context.Context, id, newName, oldParentID, newParentID string) (store.Object, error) {
	params := url.Values{}
	params.Set("fields", objectFields)
	if newParentID != "" && newParentID != oldParentID {
		params.Set("addParents", newParentID)
		params.Set("removeParents", oldParentID)
	}

	var res fileResource
	err := d.doJSON(ctx, "Rename", request{
		method:      "PATCH",
		url:         d.filesURL("/files/"+url.PathEscape(id), params),
		contentType: "application/json",
		body:        jsonBody(fileResource{Name: newName}),
	}, &res)
	if err != nil {
		return store.Object{}, fmt.Errorf("rename %s: %w", id, err)
	}
	return toObject(res), nil
}

// Delete removes the object. Folders are deleted with their subtree.
func (d *DriveStore) Delete(ctx context.Context, id string) error {
	resp, err := d.do(ctx, "Delete", request{
		method: "DELETE",
		url:    d.filesURL("/files/"+url.PathEscape(id), nil),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	_ = resp.Body.Close()
	return nil
}
