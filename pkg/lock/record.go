// Copyright 2021-2026 RCSB PDB
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

package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Entry is one on-disk lock record as seen by the file-based drivers.
// The record file is named {key}~{mode}~{uid} and holds the owner
// Record as JSON.
type Entry struct {
	Key     string
	Mode    string // "R", "W" or "T"
	UID     string
	Path    string
	ModTime time.Time
}

// EncodeName composes the lock record filename for a key, mode tag
// and uid.
func EncodeName(key, modeTag, uid string) string {
	return key + "~" + modeTag + "~" + uid
}

// DecodeName splits a lock record filename into key, mode tag and
// uid. The key itself contains a separator, so the name is parsed
// from the right.
func DecodeName(name string) (key, modeTag, uid string, err error) {
	i := strings.LastIndex(name, "~")
	if i < 0 {
		return "", "", "", errors.Errorf("lock: malformed record name %q", name)
	}
	uid = name[i+1:]
	rest := name[:i]
	j := strings.LastIndex(rest, "~")
	if j < 0 {
		return "", "", "", errors.Errorf("lock: malformed record name %q", name)
	}
	modeTag = rest[j+1:]
	key = rest[:j]
	if uid == "" || (modeTag != "R" && modeTag != "W" && modeTag != Transitory) {
		return "", "", "", errors.Errorf("lock: malformed record name %q", name)
	}
	return key, modeTag, uid, nil
}

// WriteEntry creates the record file for a lock acquisition attempt.
func WriteEntry(dir, key, modeTag, uid string, rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", errors.Wrap(err, "lock: error serializing record")
	}
	p := filepath.Join(dir, EncodeName(key, modeTag, uid))
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", errors.Wrap(err, "lock: error writing record file")
	}
	return p, nil
}

// ReadEntryRecord parses the owner record stored in a record file.
func ReadEntryRecord(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, errors.Wrap(err, "lock: error reading record file")
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.Wrap(err, "lock: corrupt record file")
	}
	return rec, nil
}

// Observe lists the lock records for key in dir, excluding the uid of
// the caller's own attempts.
func Observe(dir, key, ownUID string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, key+"~*"))
	if err != nil {
		return nil, errors.Wrap(err, "lock: bad glob pattern")
	}
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		k, mode, uid, err := DecodeName(filepath.Base(m))
		if err != nil || k != key || uid == ownUID {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil {
			continue // released between glob and stat
		}
		entries = append(entries, Entry{Key: k, Mode: mode, UID: uid, Path: m, ModTime: fi.ModTime()})
	}
	return entries, nil
}

// ListEntries lists every lock record in dir.
func ListEntries(dir string) ([]Entry, error) {
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "lock: error reading lock directory")
	}
	entries := make([]Entry, 0, len(names))
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		k, mode, uid, err := DecodeName(de.Name())
		if err != nil {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Key: k, Mode: mode, UID: uid,
			Path:    filepath.Join(dir, de.Name()),
			ModTime: fi.ModTime(),
		})
	}
	return entries, nil
}

// SignalOwner asks a stale lock owner to stop. Only owners on the
// local host can be signalled; remote owners are skipped.
func SignalOwner(rec Record) error {
	host, _ := os.Hostname()
	if rec.Hostname != host || rec.Pid <= 0 || rec.Pid == os.Getpid() {
		return nil
	}
	p, err := os.FindProcess(rec.Pid)
	if err != nil {
		return nil
	}
	if err := p.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "lock: error signalling pid %d", rec.Pid)
	}
	return nil
}
