// Package download fetches songs for offline playback, one at a time.
package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/resolver"
	"github.com/osa030/vibestream/internal/domain/song"
)

var (
	ErrDownloadInProgress = errors.New("download already in progress")
	ErrNoURL              = errors.New("download url is required")
)

// Status represents the state of a download task.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Task is a snapshot of a download.
type Task struct {
	ID        string
	Song      song.Song
	SourceURL string
	Filename  string
	Percent   int // 0 to 100, stays 0 while the size is unknown
	Received  int64
	Total     int64 // -1 if unknown
	Status    Status
	SavedPath string // set when a file copy was written
	Err       error
}

// BlobStore keeps the offline copies.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// FileSink saves a user-visible copy of a finished download.
type FileSink interface {
	Save(filename string, data []byte) (string, error)
}

// Config represents download manager configuration.
type Config struct {
	HTTPClient       *http.Client
	CompletionLinger time.Duration // how long a completed task stays visible
	Quality          resolver.Quality
}

// Manager runs at most one download at a time.
type Manager struct {
	mu sync.Mutex

	blobs  BlobStore
	sink   FileSink
	config Config

	active *Task

	onUpdate     func(Task)
	onDownloaded func(songID string, downloaded bool)

	linger *time.Timer
	wg     sync.WaitGroup
}

// NewManager creates a new download manager. sink may be nil.
func NewManager(blobs BlobStore, sink FileSink, config Config) *Manager {
	if config.HTTPClient == nil {
		// no timeout, downloads are bounded by the caller's context
		config.HTTPClient = &http.Client{}
	}
	if config.CompletionLinger < 0 {
		config.CompletionLinger = 0
	}
	if config.Quality == "" {
		config.Quality = resolver.QualityHigh
	}
	return &Manager{
		blobs:  blobs,
		sink:   sink,
		config: config,
	}
}

// SetUpdateCallback sets the callback for task updates.
func (m *Manager) SetUpdateCallback(callback func(Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = callback
}

// SetDownloadedCallback sets the callback invoked when an offline copy is
// stored or removed.
func (m *Manager) SetDownloadedCallback(callback func(songID string, downloaded bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDownloaded = callback
}

// StartDownload starts downloading url for s. Only one download runs at a
// time; a completed task that is still lingering is replaced.
func (m *Manager) StartDownload(ctx context.Context, s song.Song, url, filename string) (Task, error) {
	if url == "" {
		return Task{}, ErrNoURL
	}
	if filename == "" {
		filename = s.DownloadFilename("")
	}

	m.mu.Lock()
	if m.active != nil && m.active.Status == StatusDownloading {
		m.mu.Unlock()
		return Task{}, ErrDownloadInProgress
	}
	m.stopLingerLocked()

	task := &Task{
		ID:        uuid.New().String(),
		Song:      s,
		SourceURL: url,
		Filename:  filename,
		Total:     -1,
		Status:    StatusDownloading,
	}
	m.active = task
	snapshot := *task
	m.wg.Add(1)
	m.mu.Unlock()

	zlog.Info().Msgf("download: started: task_id=%s song_id=%s filename=%s", task.ID, s.ID, filename)
	m.notify(snapshot)

	go m.run(ctx, task.ID, s, url, filename)
	return snapshot, nil
}

// QuickDownload downloads the configured quality with the default file name.
func (m *Manager) QuickDownload(ctx context.Context, s song.Song) (Task, error) {
	rendition, err := resolver.SelectURL(s.DownloadURLs, m.config.Quality)
	if err != nil {
		return Task{}, errors.Wrapf(err, "song %s", s.ID)
	}
	return m.StartDownload(ctx, s, rendition.URL, s.DownloadFilename(rendition.Quality))
}

// Active returns the current task, if any.
func (m *Manager) Active() (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Task{}, false
	}
	return *m.active, true
}

// Remove deletes the offline copy of songID.
func (m *Manager) Remove(ctx context.Context, songID string) error {
	if err := m.blobs.Delete(ctx, songID); err != nil {
		return errors.Wrapf(err, "failed to remove offline copy of %s", songID)
	}
	zlog.Info().Msgf("download: removed offline copy: song_id=%s", songID)

	m.mu.Lock()
	cb := m.onDownloaded
	m.mu.Unlock()
	if cb != nil {
		cb(songID, false)
	}
	return nil
}

// Wait blocks until running downloads have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops the linger timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLingerLocked()
}

func (m *Manager) run(ctx context.Context, taskID string, s song.Song, url, filename string) {
	defer m.wg.Done()

	data, err := m.fetch(ctx, taskID, url)
	if err != nil {
		m.fail(taskID, err)
		return
	}

	if err := m.blobs.Put(ctx, s.ID, data); err != nil {
		// playback falls back to the network
		zlog.Error().Msgf("download: failed to store offline copy: song_id=%s error=%v", s.ID, err)
	} else {
		m.mu.Lock()
		cb := m.onDownloaded
		m.mu.Unlock()
		if cb != nil {
			cb(s.ID, true)
		}
	}

	var savedPath string
	if m.sink != nil {
		path, err := m.sink.Save(filename, data)
		if err != nil {
			zlog.Warn().Msgf("download: failed to save file: filename=%s error=%v", filename, err)
		}
		savedPath = path
	}

	m.mu.Lock()
	if m.active == nil || m.active.ID != taskID {
		m.mu.Unlock()
		return
	}
	m.active.Percent = 100
	m.active.Status = StatusCompleted
	m.active.SavedPath = savedPath
	snapshot := *m.active
	m.linger = time.AfterFunc(m.config.CompletionLinger, func() { m.clear(taskID) })
	m.mu.Unlock()

	zlog.Info().Msgf("download: completed: task_id=%s song_id=%s size=%s", taskID, s.ID, humanize.Bytes(uint64(len(data))))
	m.notify(snapshot)
}

func (m *Manager) fetch(ctx context.Context, taskID, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := m.config.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("download failed: %s", resp.Status)
	}

	total := resp.ContentLength
	m.mu.Lock()
	if m.active != nil && m.active.ID == taskID {
		m.active.Total = total
	}
	m.mu.Unlock()

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	pr := &progressReader{
		r:     resp.Body,
		total: total,
		onProgress: func(received int64, percent int) {
			m.progress(taskID, received, percent)
		},
	}
	if _, err := io.Copy(&buf, pr); err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return buf.Bytes(), nil
}

func (m *Manager) progress(taskID string, received int64, percent int) {
	m.mu.Lock()
	if m.active == nil || m.active.ID != taskID {
		m.mu.Unlock()
		return
	}
	m.active.Received = received
	m.active.Percent = percent
	snapshot := *m.active
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Manager) fail(taskID string, err error) {
	m.mu.Lock()
	if m.active == nil || m.active.ID != taskID {
		m.mu.Unlock()
		return
	}
	snapshot := *m.active
	snapshot.Status = StatusFailed
	snapshot.Err = err
	m.active = nil
	m.mu.Unlock()

	zlog.Error().Msgf("download: failed: task_id=%s song_id=%s error=%v", taskID, snapshot.Song.ID, err)
	m.notify(snapshot)
}

func (m *Manager) clear(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.ID == taskID {
		m.active = nil
	}
}

func (m *Manager) stopLingerLocked() {
	if m.linger != nil {
		m.linger.Stop()
		m.linger = nil
	}
}

func (m *Manager) notify(task Task) {
	m.mu.Lock()
	cb := m.onUpdate
	m.mu.Unlock()
	if cb != nil {
		cb(task)
	}
}

// progressReader reports integer percent changes while reading.
type progressReader struct {
	r          io.Reader
	total      int64
	received   int64
	percent    int
	onProgress func(received int64, percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.received += int64(n)
	if p.total > 0 && n > 0 {
		percent := int(p.received * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.percent {
			p.percent = percent
			p.onProgress(p.received, percent)
		}
	}
	return n, err
}
