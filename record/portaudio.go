package record

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/voxlabs/voxd/audio"
)

const captureChannels = 1

// PortAudioSource opens microphone streams through the portaudio driver.
// portaudio.Initialize must have been called before Open.
type PortAudioSource struct {
	// Device selects an input device by name substring. Empty uses the
	// system default.
	Device string

	FramesPerBuffer int
}

func (p *PortAudioSource) Open(onFrames func([]float32)) (Stream, Info, error) {
	device, name, err := p.inputDevice()
	if err != nil {
		return nil, Info{}, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: captureChannels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: p.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		// Driver warnings are logged, never fatal; the session keeps
		// collecting best-effort.
		if flags&portaudio.InputOverflow != 0 {
			slog.Warn("Capture stream input overflow", "device", name)
		}
		onFrames(in)
	})
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to open audio stream: %w", err)
	}

	slog.Debug("Opened capture stream",
		"device", device.Name,
		"sampleRate", audio.SampleRate,
		"framesPerBuffer", p.FramesPerBuffer)

	return stream, Info{SampleRate: audio.SampleRate, Channels: captureChannels, Device: name}, nil
}

func (p *PortAudioSource) inputDevice() (*portaudio.DeviceInfo, string, error) {
	if p.Device == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, "default", nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list audio devices: %w", err)
	}
	for _, device := range devices {
		if device.MaxInputChannels > 0 && strings.Contains(device.Name, p.Device) {
			return device, device.Name, nil
		}
	}
	return nil, "", fmt.Errorf("no input device matching %q", p.Device)
}

// ListDevices returns every input-capable device.
func ListDevices() ([]portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}
	return inputDevices, nil
}
