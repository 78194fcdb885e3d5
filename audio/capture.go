package audio

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device аудио устройство захвата
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Capture захват моно аудио с микрофона через malgo.
// Используется демо-командой livemic; основной путь пайплайна
// принимает PCM чанки извне
type Capture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int

	dataChan chan []float32
	mu       sync.Mutex
	running  bool
}

// NewCapture создаёт контекст захвата
func NewCapture(sampleRate int) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		dataChan:   make(chan []float32, 64),
	}, nil
}

// ListDevices возвращает устройства захвата
func (c *Capture) ListDevices() ([]Device, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, dev := range infos {
		devices = append(devices, Device{ID: deviceIDToString(dev.ID), Name: dev.Name()})
	}
	return devices, nil
}

// Start запускает захват с устройства по умолчанию
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		n := int(framecount)
		if len(pInputSamples) != n*4 {
			return
		}
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 |
				uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}
		select {
		case c.dataChan <- samples:
		default:
			// Потребитель отстал, кадр пропускается
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}

	c.device = device
	c.running = true
	log.Printf("[Capture] microphone capture started (%d Hz)", c.sampleRate)
	return nil
}

// Data возвращает канал с захваченными семплами
func (c *Capture) Data() <-chan []float32 {
	return c.dataChan
}

// Stop останавливает захват и освобождает устройство
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.device.Uninit()
	c.device = nil
	c.running = false
	log.Printf("[Capture] microphone capture stopped")
}

// Close освобождает контекст malgo
func (c *Capture) Close() {
	c.Stop()
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// deviceIDToString конвертирует DeviceID в строку для UI/логов
func deviceIDToString(id malgo.DeviceID) string {
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}
