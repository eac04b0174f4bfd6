package credentials

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxLineLength bounds a single line of the credential file. Longer lines
// are skipped.
const maxLineLength = 1024 * 1024

// Snapshot is an immutable digest -> identity mapping built from one read of
// the credential file. It is never modified after Parse returns it.
type Snapshot struct {
	entries map[string]string
	count   int
	users   int

	// Path is the file the snapshot was loaded from, empty for Parse.
	Path string
	// LoadedAt is when parsing finished.
	LoadedAt time.Time
}

// Lookup returns the identity for an exact digest match.
func (s *Snapshot) Lookup(digest string) (string, bool) {
	user, ok := s.entries[digest]
	return user, ok
}

// Count is the number of lines that were turned into entries.
func (s *Snapshot) Count() int {
	return s.count
}

// Digests is the number of distinct digests in the mapping.
func (s *Snapshot) Digests() int {
	return len(s.entries)
}

// Users is the number of distinct identities in the mapping.
func (s *Snapshot) Users() int {
	return s.users
}

// Load reads the credential file at path and builds a new Snapshot.
// A missing or empty file is not treated the same way: the former fails with
// FileNotFound, the latter yields an empty snapshot.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newLoadError(path, err)
	}
	defer f.Close()

	snap, err := Parse(f)
	if err != nil {
		return nil, &LoadError{Kind: IOFailure, Path: path, Err: err}
	}
	snap.Path = path
	return snap, nil
}

// Parse builds a Snapshot from credential lines of the form "user:token".
// Blank lines and lines starting with '#' are ignored. Malformed lines (no
// colon, empty user or empty token) are skipped with a warning. When two
// lines produce the same digest the later one wins. Only a failing reader
// makes Parse return an error.
func Parse(r io.Reader) (*Snapshot, error) {
	entries := map[string]string{}
	users := hashset.New()
	count := 0

	br := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, tooLong, err := readLine(br)
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "reading line %d", lineNo+1)
		}
		if err == io.EOF && len(raw) == 0 && !tooLong {
			break
		}
		lineNo++

		if tooLong {
			log.WithField("line", lineNo).Warnf("Skipping credential line longer than %d bytes", maxLineLength)
		} else if line := strings.TrimSpace(string(raw)); line != "" && !strings.HasPrefix(line, "#") {
			user, token, ok := splitCredential(line)
			if ok {
				entries[Digest(user, token)] = user
				users.Add(user)
				count++
			} else {
				// Don't log the line itself, it may hold a secret.
				log.WithField("line", lineNo).Warn("Skipping malformed credential line")
			}
		}

		if err == io.EOF {
			break
		}
	}

	return &Snapshot{
		entries:  entries,
		count:    count,
		users:    users.Size(),
		LoadedAt: time.Now(),
	}, nil
}

// readLine returns the next line including its newline. A line over
// maxLineLength is consumed up to its end but its content is dropped and
// tooLong is set.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineLength {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}

// splitCredential splits a line on its first colon. Everything after the
// first colon belongs to the token.
func splitCredential(line string) (string, string, bool) {
	user, token, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	user = strings.TrimSpace(user)
	token = strings.TrimSpace(token)
	if user == "" || token == "" {
		return "", "", false
	}
	return user, token, true
}
