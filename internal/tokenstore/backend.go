// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tokenstore

import "context"

// # Durable Key/Value Access

// Backend is the durable storage contract underneath a [Store].
//
// Implementations must make SetMany and DeleteMany all-or-nothing, so a reader
// never observes half of a token rotation or half of a logout.
type Backend interface {

	/*
		Get returns the value stored under key.

		Parameters:
		  - context: context.Context
		  - key: string

		Returns:
		  - string: Stored value
		  - bool: false when the key is absent
		  - error: Connectivity or storage failures
	*/
	Get(context context.Context, key string) (string, bool, error)

	/*
		SetMany writes every pair in one atomic unit.

		Parameters:
		  - context: context.Context
		  - values: map[string]string

		Returns:
		  - error: Persistence failures
	*/
	SetMany(context context.Context, values map[string]string) error

	/*
		DeleteMany removes every key in one atomic unit. Absent keys are ignored.

		Parameters:
		  - context: context.Context
		  - keys: []string

		Returns:
		  - error: Persistence failures
	*/
	DeleteMany(context context.Context, keys ...string) error

	// Ping reports whether the backend is reachable.
	Ping(context context.Context) error

	// Close releases the underlying connection or file handle.
	Close() error
}
