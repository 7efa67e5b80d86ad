package apiclient

import "fmt"

// getResource performs a GET request to path and decodes the body into a T.
func getResource[T any](c *Client, path string) (*T, error) {
	var result T
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// deleteResource performs a DELETE request to path.
func deleteResource(c *Client, path string) error {
	return c.delete(path, nil)
}

// resourcePath formats a path template.
//
//	path := resourcePath("/api/v1/clients/%x", id)
func resourcePath(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
