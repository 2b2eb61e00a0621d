// Package device adapts the miniaudio backend (github.com/gen2brain/malgo)
// to the pkg/audio/device interfaces: enumeration, name-based resolution,
// native-rate capture streams, and interruptible playback.
//
// Everything hardware-specific lives here so the rest of the pipeline can be
// tested with fakes.
package device

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/standin-ai/standin/pkg/audio"
	"github.com/standin-ai/standin/pkg/audio/device"
)

// Compile-time interface assertion.
var _ device.Provider = (*Provider)(nil)

// preferredRate is chosen as the capture rate when the device supports it;
// most consumer interfaces run natively at 48 kHz.
const preferredRate = 48000

// Provider implements device.Provider on top of a shared miniaudio context.
type Provider struct {
	ctx *malgo.AllocatedContext

	mu    sync.Mutex
	cache map[device.Kind][]malgo.DeviceInfo
}

// NewProvider initialises the miniaudio context. Call [Provider.Close] when
// done.
func NewProvider() (*Provider, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("device: init miniaudio context: %w", err)
	}
	return &Provider{
		ctx:   ctx,
		cache: make(map[device.Kind][]malgo.DeviceInfo),
	}, nil
}

// Close releases the miniaudio context.
func (p *Provider) Close() error {
	if err := p.ctx.Uninit(); err != nil {
		return fmt.Errorf("device: uninit miniaudio context: %w", err)
	}
	p.ctx.Free()
	return nil
}

func deviceType(kind device.Kind) malgo.DeviceType {
	if kind == device.Output {
		return malgo.Playback
	}
	return malgo.Capture
}

// enumerate lists backend devices and caches the result so Resolve and
// OpenCapture agree on index assignment.
func (p *Provider) enumerate(kind device.Kind) ([]malgo.DeviceInfo, error) {
	infos, err := p.ctx.Devices(deviceType(kind))
	if err != nil {
		return nil, fmt.Errorf("device: enumerate %s devices: %w", kind, err)
	}
	p.mu.Lock()
	p.cache[kind] = infos
	p.mu.Unlock()
	return infos, nil
}

// List implements device.Provider.
func (p *Provider) List(kind device.Kind) ([]device.Info, error) {
	infos, err := p.enumerate(kind)
	if err != nil {
		return nil, err
	}
	out := make([]device.Info, 0, len(infos))
	for i, mi := range infos {
		out = append(out, p.describe(i, mi, kind))
	}
	return out, nil
}

// describe fills a device.Info from basic enumeration data plus the full
// per-device query when available.
func (p *Provider) describe(index int, mi malgo.DeviceInfo, kind device.Kind) device.Info {
	info := device.Info{
		Index: index,
		Name:  mi.Name(),
	}

	full, err := p.ctx.DeviceInfo(deviceType(kind), mi.ID, malgo.Shared)
	if err != nil {
		slog.Debug("device info query failed", "device", mi.Name(), "err", err)
		full = mi
	}

	channels := int(full.MaxChannels)
	if channels == 0 {
		channels = 2
	}
	if kind == device.Input {
		info.MaxInputChannels = channels
	} else {
		info.MaxOutputChannels = channels
	}
	info.DefaultSampleRate = nativeRate(full)
	return info
}

// nativeRate picks the capture rate for a device. miniaudio reports a
// supported range rather than a single native rate; prefer 48 kHz when the
// range allows it, otherwise the highest supported rate.
func nativeRate(mi malgo.DeviceInfo) int {
	minRate, maxRate := int(mi.MinSampleRate), int(mi.MaxSampleRate)
	if maxRate == 0 {
		return preferredRate
	}
	if minRate <= preferredRate && preferredRate <= maxRate {
		return preferredRate
	}
	return maxRate
}

// Resolve implements device.Provider. An empty name resolves to the backend
// default device for the kind.
func (p *Provider) Resolve(name string, kind device.Kind) (device.Info, error) {
	infos, err := p.enumerate(kind)
	if err != nil {
		return device.Info{}, err
	}
	if len(infos) == 0 {
		return device.Info{}, device.ErrNotFound
	}

	if name == "" {
		for i, mi := range infos {
			if mi.IsDefault != 0 {
				return p.describe(i, mi, kind), nil
			}
		}
		return p.describe(0, infos[0], kind), nil
	}

	needle := strings.ToLower(name)
	for i, mi := range infos {
		if strings.Contains(strings.ToLower(mi.Name()), needle) {
			return p.describe(i, mi, kind), nil
		}
	}
	return device.Info{}, fmt.Errorf("device: %s %q: %w", kind, name, device.ErrNotFound)
}

// cached returns the malgo device record backing a previously resolved Info.
func (p *Provider) cached(info device.Info, kind device.Kind) (malgo.DeviceInfo, error) {
	p.mu.Lock()
	infos := p.cache[kind]
	p.mu.Unlock()
	if info.Index < 0 || info.Index >= len(infos) {
		return malgo.DeviceInfo{}, fmt.Errorf("device: stale device index %d; call List or Resolve first", info.Index)
	}
	return infos[info.Index], nil
}

// OpenCapture implements device.Provider. Blocks are delivered as interleaved
// float32 at the device's native rate and channel count.
func (p *Provider) OpenCapture(info device.Info, blockSize int, fn device.BlockFunc) (device.CaptureStream, error) {
	mi, err := p.cached(info, device.Input)
	if err != nil {
		return nil, err
	}

	channels := info.MaxInputChannels
	if channels <= 0 {
		channels = 1
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.Capture.DeviceID = mi.ID.Pointer()
	cfg.SampleRate = uint32(info.DefaultSampleRate)
	cfg.PeriodSizeInFrames = uint32(blockSize)

	onRecv := func(_, input []byte, frameCount uint32) {
		if len(input) == 0 {
			return
		}
		fn(bytesToFloat32(input))
	}

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, fmt.Errorf("device: open capture on %q: %w", info.Name, err)
	}
	return &captureStream{dev: dev}, nil
}

type captureStream struct {
	dev     *malgo.Device
	mu      sync.Mutex
	stopped bool
}

func (s *captureStream) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("device: start capture: %w", err)
	}
	return nil
}

func (s *captureStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("device: stop capture: %w", err)
	}
	s.dev.Uninit()
	return nil
}

// OpenPlayer implements device.Provider.
func (p *Provider) OpenPlayer(info device.Info) (device.Player, error) {
	mi, err := p.cached(info, device.Output)
	if err != nil {
		return nil, err
	}
	return &player{provider: p, deviceID: mi.ID, name: info.Name}, nil
}

// player opens a fresh playback device per Play call; miniaudio devices are
// bound to a fixed sample rate at init time and synthesis output rates vary.
type player struct {
	provider *Provider
	deviceID malgo.DeviceID
	name     string

	mu      sync.Mutex
	current *malgo.Device
	done    chan struct{}
}

func (pl *player) Play(samples []float32, rate int) error {
	if len(samples) == 0 {
		return nil
	}

	pcm := audio.FloatToPCM16(samples)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.Playback.DeviceID = pl.deviceID.Pointer()
	cfg.SampleRate = uint32(rate)

	done := make(chan struct{})
	var once sync.Once
	var pos int

	onSend := func(output, _ []byte, frameCount uint32) {
		n := copy(output, pcm[pos:])
		pos += n
		for i := n; i < len(output); i++ {
			output[i] = 0
		}
		if pos >= len(pcm) {
			once.Do(func() { close(done) })
		}
	}

	dev, err := malgo.InitDevice(pl.provider.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSend})
	if err != nil {
		return fmt.Errorf("device: open playback on %q: %w", pl.name, err)
	}

	pl.mu.Lock()
	pl.current = dev
	pl.done = done
	pl.mu.Unlock()

	defer func() {
		pl.mu.Lock()
		if pl.current == dev {
			pl.current = nil
		}
		pl.mu.Unlock()
		dev.Uninit()
	}()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("device: start playback: %w", err)
	}
	<-done
	return nil
}

func (pl *player) Stop() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.current == nil {
		return
	}
	// Closing done unblocks Play, which uninitialises the device.
	select {
	case <-pl.done:
	default:
		close(pl.done)
	}
	pl.current = nil
}

// bytesToFloat32 reinterprets little-endian float32 PCM bytes as samples.
func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := range n {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
