// Copyright (c) 2024-2025, The MC-NS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES ARE DISCLAIMED.

package firmware

// MemFS is the reference Filesystem implementation: a per-node in-memory
// map, preserved across Reboot since it lives independently of whatever
// Entity is constructed for a given run segment.
type MemFS struct {
	files map[string][]byte
}

// NewMemFS returns an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (fs *MemFS) Read(path string) ([]byte, bool) {
	data, ok := fs.files[path]
	return data, ok
}

func (fs *MemFS) Write(path string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	fs.files[path] = cp
}

func (fs *MemFS) Exists(path string) bool {
	_, ok := fs.files[path]
	return ok
}

func (fs *MemFS) Remove(path string) {
	delete(fs.files, path)
}
