// Copyright 2024 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunPair drives fn1 and fn2 concurrently and returns the first error
// either reports. It demonstrates that two different connection objects
// are fully independent and may be driven in parallel by the host: callers
// pass one closure per connection, each closure free to stage bytes, write
// them to its own End, and parse replies without touching the other's
// state.
func RunPair(ctx context.Context, fn1, fn2 func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fn1(ctx) })
	g.Go(func() error { return fn2(ctx) })
	return g.Wait()
}
