// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "errors"

var errUnplugged = errors.New("device unplugged")

// scriptedConn returns one scripted chunk per Read, then 0, nil forever
type scriptedConn struct {
	chunks [][]byte
	fail   error
	closed bool
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.fail != nil {
			return 0, c.fail
		}
		return 0, nil
	}
	chunk := c.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		c.chunks[0] = chunk[n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	return len(p), nil
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}
