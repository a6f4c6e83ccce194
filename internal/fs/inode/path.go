// Copyright 2026 The rqbit-fuse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inode

import "strings"

// Normalize collapses repeated slashes, resolves "." and "..", and rejects
// escapes above root by clamping them — normalize("/..") == "/". It is
// idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	if p == "" {
		return "/"
	}

	components := strings.Split(p, "/")
	stack := make([]string, 0, len(components))
	for _, c := range components {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// Join appends a single path component to a canonical parent path, using
// "/" as separator, without re-normalizing the parent.
func Join(parentCanonicalPath, name string) string {
	if parentCanonicalPath == "/" {
		return "/" + name
	}
	return parentCanonicalPath + "/" + name
}

// SplitComponents returns the non-empty path components of a normalized
// path. SplitComponents("/") returns nil.
func SplitComponents(normalized string) []string {
	if normalized == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(normalized, "/"), "/")
}
