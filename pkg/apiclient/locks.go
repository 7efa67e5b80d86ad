package apiclient

import (
	"github.com/marmos91/nfs4state/pkg/lock"
)

// ObjectList is the response of ListLockedObjects.
type ObjectList struct {
	Count       int      `json:"count"`
	Objects     []string `json:"objects"`
	Blocked     int      `json:"blocked"`
	Distributed bool     `json:"distributed"`
}

// LockList is the response of ListLocks.
type LockList struct {
	Object string       `json:"object"`
	Count  int          `json:"count"`
	Locks  []*lock.Lock `json:"locks"`
}

// PurgeResult is the response of PurgeLocks.
type PurgeResult struct {
	Object  string `json:"object"`
	Removed int    `json:"removed"`
}

// ListLockedObjects returns the objects that hold at least one lock.
func (c *Client) ListLockedObjects() (*ObjectList, error) {
	return getResource[ObjectList](c, "/api/v1/locks")
}

// ListLocks returns the locks on one object, given as its hex key.
func (c *Client) ListLocks(object string) (*LockList, error) {
	return getResource[LockList](c, resourcePath("/api/v1/locks/%s", object))
}

// PurgeLocks drops every lock on an object (admin only).
func (c *Client) PurgeLocks(object string) (*PurgeResult, error) {
	var result PurgeResult
	if err := c.delete(resourcePath("/api/v1/locks/%s", object), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
