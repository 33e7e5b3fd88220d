package addressbook

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates no readable contact file exists for an ID.
	ErrNotFound = errors.New("contact not found")
	// ErrMalformed indicates a contact file exists but cannot be decoded.
	ErrMalformed = errors.New("malformed contact file")
	// ErrDirNotFound indicates the data directory is missing or not a directory.
	ErrDirNotFound = errors.New("data directory not found")
	// ErrWrite indicates a contact could not be persisted.
	ErrWrite = errors.New("failed to write contact")
)

const contactFileMode = 0640

// Store keeps one file per contact, named by its ID, in a single directory.
type Store struct {
	dir   string
	codec Codec
	log   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodec sets the codec used for writing. Reading detects vCards
// regardless of this setting.
func WithCodec(c Codec) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithLogger sets the logger used to report I/O failures.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore returns a Store rooted at dir. The directory is not created;
// see InitDataDir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:   dir,
		codec: LineCodec{},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Codec returns the codec used for writing.
func (s *Store) Codec() Codec { return s.codec }

// Save writes c to the file named by its ID, replacing any existing file.
func (s *Store) Save(c *Contact) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: contact has no id", ErrWrite)
	}
	if !validFileName(c.ID) {
		return fmt.Errorf("%w: invalid id %q", ErrWrite, c.ID)
	}
	data, err := s.codec.Encode(c)
	if err != nil {
		s.log.Error("failed to encode contact", "id", c.ID, "error", err)
		return fmt.Errorf("%w %s: %w", ErrWrite, c.ID, err)
	}
	path := filepath.Join(s.dir, c.ID)
	if err := os.WriteFile(path, data, contactFileMode); err != nil {
		s.log.Error("failed to write contact file", "id", c.ID, "path", path, "error", err)
		return fmt.Errorf("%w %s: %w", ErrWrite, c.ID, err)
	}
	s.log.Debug("contact saved", "id", c.ID, "format", s.codec.Name())
	return nil
}

// Load reads the contact stored under id. Any failure to read the file is
// reported as ErrNotFound; undecodable content as ErrMalformed.
func (s *Store) Load(id string) (*Contact, error) {
	if !validFileName(id) {
		s.log.Warn("rejected contact id", "id", id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := filepath.Join(s.dir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Error("failed to read contact file", "id", id, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
	}
	var c *Contact
	if isCard(data) {
		c, err = VCardCodec{}.Decode(id, data)
		if err != nil {
			// A line record whose name happens to read like a vCard header.
			if lc, lerr := (LineCodec{}).Decode(id, data); lerr == nil {
				c, err = lc, nil
			}
		}
	} else {
		c, err = LineCodec{}.Decode(id, data)
	}
	if err != nil {
		s.log.Error("failed to parse contact file", "id", id, "path", path, "error", err)
		return nil, err
	}
	return c, nil
}

// ListAll returns the names of all non-directory entries in the data
// directory, sorted.
func (s *Store) ListAll() ([]string, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirNotFound, s.dir)
		}
		return nil, fmt.Errorf("failed to stat data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirNotFound, s.dir)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || s.isDirLink(entry) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadAll loads every listed contact. Files that fail to load are logged
// and skipped.
func (s *Store) LoadAll() ([]*Contact, error) {
	ids, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Contact, 0, len(ids))
	for _, id := range ids {
		c, err := s.Load(id)
		if err != nil {
			s.log.Warn("skipping unreadable contact", "id", id, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// isDirLink reports whether entry is a symlink resolving to a directory.
// Dangling links are listed like any other file.
func (s *Store) isDirLink(entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(s.dir, entry.Name()))
	return err == nil && info.IsDir()
}

// validFileName rejects IDs that would escape the data directory.
func validFileName(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
