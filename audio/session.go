package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/manikosto/talkkey/encoder"
	"github.com/manikosto/talkkey/log"
)

var (
	ErrPermissionDenied  = errors.New("microphone access denied")
	ErrDeviceSetupFailed = errors.New("audio device setup failed")
)

// LevelInterval is how often a capture emits a level sample.
const LevelInterval = 50 * time.Millisecond

// Permissions reports and requests microphone access.
type Permissions interface {
	MicrophoneAuthorized() bool
	RequestMicrophone() bool
}

// Artifact is a finished recording on disk.
type Artifact struct {
	Path     string
	Duration time.Duration
}

func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Recorder opens capture sessions on a Context.
type Recorder struct {
	ctx   Context
	dir   Directory
	perms Permissions

	// TempDir receives in-progress artifacts. Empty means os.TempDir().
	TempDir string
	// Interval overrides LevelInterval.
	Interval time.Duration
}

// NewRecorder returns a Recorder. dir may be nil, in which case a selected
// device is opened directly instead of becoming the default input.
func NewRecorder(ctx Context, dir Directory, perms Permissions) *Recorder {
	return &Recorder{ctx: ctx, dir: dir, perms: perms}
}

// Start opens a capture on device (ID or name, "" for the default input)
// and starts writing it to a temporary WAV file. onLevel, if set, receives
// every level sample on the sampling goroutine and must not block.
func (r *Recorder) Start(device string, onLevel func(LevelSample)) (*Capture, error) {
	if r.perms != nil && !r.perms.MicrophoneAuthorized() && !r.perms.RequestMicrophone() {
		return nil, ErrPermissionDenied
	}

	c := &Capture{
		monitor: NewLevelMonitor(),
		onLevel: onLevel,
		restore: func() {},
		chunks:  make(chan []byte, 512),
		quit:    make(chan struct{}),
		started: time.Now(),
	}

	target, name := r.resolve(device, c)

	dir := r.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	c.path = filepath.Join(dir, "talkkey-"+uuid.NewString()+".wav")
	f, err := os.Create(c.path)
	if err != nil {
		c.restore()
		return nil, fmt.Errorf("creating recording file: %w", err)
	}
	c.file = f
	c.enc = wav.NewEncoder(f, encoder.SampleRate, encoder.BitsPerSample, encoder.Channels, 1)

	dev, err := r.ctx.NewCapture(target, CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels})
	if err != nil {
		c.abandon()
		return nil, fmt.Errorf("%w: %v", ErrDeviceSetupFailed, err)
	}
	c.device = dev
	c.DeviceName = name

	c.writerDone = make(chan struct{})
	go c.write()

	dev.SetCallback(c.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		c.closeChunks()
		<-c.writerDone
		c.abandon()
		return nil, fmt.Errorf("%w: %v", ErrDeviceSetupFailed, err)
	}

	interval := r.Interval
	if interval <= 0 {
		interval = LevelInterval
	}
	c.samplerDone = make(chan struct{})
	go c.sample(interval)

	return c, nil
}

// resolve picks the device to open. A selected device becomes the default
// input for the session when the directory allows it; a device that has
// disappeared falls back to the default.
func (r *Recorder) resolve(device string, c *Capture) (*DeviceInfo, string) {
	if device == "" {
		return nil, "default"
	}
	devices, err := r.ctx.Devices()
	if err != nil {
		log.Warnf("listing devices: %v", err)
		return nil, "default"
	}
	d, ok := FindDevice(devices, device)
	if !ok {
		log.Warnf("device %q not found, using default input", device)
		return nil, "default"
	}
	if r.dir != nil {
		restore, err := Override(r.dir, d.ID)
		if err == nil {
			c.restore = restore
			return nil, d.Name
		}
		log.Warnf("default input override failed, opening %s directly: %v", d.Name, err)
	}
	return &d, d.Name
}

// Capture is one running capture session. Stop and Cancel end it; only the
// first of them has any effect.
type Capture struct {
	DeviceName string

	device  CaptureDevice
	monitor *LevelMonitor
	onLevel func(LevelSample)
	restore func()
	started time.Time

	path   string
	file   *os.File
	enc    *wav.Encoder
	frames uint64
	werr   error

	mu     sync.Mutex
	win    window
	closed bool
	chunks chan []byte

	quit        chan struct{}
	samplerDone chan struct{}
	writerDone  chan struct{}
	endOnce     sync.Once
}

var errCaptureEnded = errors.New("capture already ended")

func (c *Capture) onData(data []byte, _ uint32) {
	buf := make([]byte, len(data))
	copy(buf, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.win.add(buf)
	c.chunks <- buf
}

func (c *Capture) closeChunks() {
	c.mu.Lock()
	c.closed = true
	close(c.chunks)
	c.mu.Unlock()
}

func (c *Capture) write() {
	defer close(c.writerDone)
	for chunk := range c.chunks {
		if c.werr != nil {
			continue
		}
		data := make([]int, len(chunk)/2)
		for i := range data {
			data[i] = int(int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8))
		}
		buf := &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: encoder.Channels, SampleRate: encoder.SampleRate},
			Data:           data,
			SourceBitDepth: encoder.BitsPerSample,
		}
		if err := c.enc.Write(buf); err != nil {
			c.werr = err
			continue
		}
		c.frames += uint64(len(data))
	}
}

func (c *Capture) sample(interval time.Duration) {
	defer close(c.samplerDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		s, ok := c.win.take()
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.monitor.Add(s)
		if c.onLevel != nil {
			c.onLevel(s)
		}
	}
}

// halt stops the device and both goroutines. No sample is added after it
// returns.
func (c *Capture) halt() {
	c.device.Stop()
	c.device.ClearCallback()
	close(c.quit)
	<-c.samplerDone
	c.closeChunks()
	<-c.writerDone
	c.device.Close()
}

// abandon closes and deletes the artifact and releases the device override.
func (c *Capture) abandon() {
	c.file.Close()
	os.Remove(c.path)
	c.restore()
}

// Stop ends the capture and finalizes the artifact. The device override,
// if any, is released whether or not finalizing succeeds.
func (c *Capture) Stop() (Artifact, error) {
	err := errCaptureEnded
	var art Artifact
	c.endOnce.Do(func() {
		defer c.restore()
		c.halt()

		err = c.werr
		if cerr := c.enc.Close(); err == nil {
			err = cerr
		}
		if cerr := c.file.Close(); err == nil && !errors.Is(cerr, os.ErrClosed) {
			err = cerr
		}
		if err != nil {
			os.Remove(c.path)
			err = fmt.Errorf("finalizing recording: %w", err)
			return
		}
		art = Artifact{
			Path:     c.path,
			Duration: time.Duration(c.frames) * time.Second / encoder.SampleRate,
		}
	})
	return art, err
}

// Cancel ends the capture and deletes the artifact.
func (c *Capture) Cancel() {
	c.endOnce.Do(func() {
		defer c.restore()
		c.halt()
		c.enc.Close()
		c.file.Close()
		os.Remove(c.path)
	})
}

// Monitor returns the session's level monitor. Its verdict is final once
// Stop or Cancel has returned.
func (c *Capture) Monitor() *LevelMonitor { return c.monitor }

func (c *Capture) Verdict() bool { return c.monitor.Verdict() }

func (c *Capture) Started() time.Time { return c.started }

// ProbePermissions treats the microphone as authorized when the backend can
// enumerate at least one capture device. Desktop Linux has no separate
// microphone permission.
type ProbePermissions struct {
	Ctx Context
}

func (p ProbePermissions) MicrophoneAuthorized() bool {
	devices, err := p.Ctx.Devices()
	return err == nil && len(devices) > 0
}

func (p ProbePermissions) RequestMicrophone() bool {
	return p.MicrophoneAuthorized()
}
