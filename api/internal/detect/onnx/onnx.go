// Package onnx — реализация detect.Model поверх onnxruntime (purego, без cgo).
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/getcharzp/onnxruntime_purego"
	"github.com/up-zero/gotool/convertutil"

	"doc-scanner/api/internal/detect"
)

// Config параметры модели классификатора.
type Config struct {
	OnnxRuntimeLibPath string
	ModelPath          string
	InputName          string
	OutputName         string
}

// runtimeConfig — общая часть: библиотека рантайма + опции сессии.
type runtimeConfig struct {
	OnnxRuntimeLibPath string
	OnnxEngine         *ort.Engine
	SessionOptions     *ort.SessionOptions
}

func (c *runtimeConfig) New() error {
	engine, err := ort.NewEngine(c.OnnxRuntimeLibPath)
	if err != nil {
		return fmt.Errorf("init onnxruntime %s: %w", c.OnnxRuntimeLibPath, err)
	}
	opts, err := engine.NewSessionOptions()
	if err != nil {
		engine.Destroy()
		return fmt.Errorf("session options: %w", err)
	}
	c.OnnxEngine = engine
	c.SessionOptions = opts
	return nil
}

// Model — сессия onnxruntime с одним входом и одним выходом.
type Model struct {
	engine  *ort.Engine
	session *ort.Session
	input   string
	output  string

	mu sync.Mutex
}

// New загружает модель с диска.
func New(cfg Config) (*Model, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is empty")
	}
	rc := new(runtimeConfig)
	_ = convertutil.CopyProperties(cfg, rc)

	if err := rc.New(); err != nil {
		return nil, err
	}

	session, err := rc.OnnxEngine.NewSession(cfg.ModelPath, rc.SessionOptions)
	if err != nil {
		rc.OnnxEngine.Destroy()
		return nil, fmt.Errorf("create session %s: %w", cfg.ModelPath, err)
	}

	m := &Model{
		engine:  rc.OnnxEngine,
		session: session,
		input:   cfg.InputName,
		output:  cfg.OutputName,
	}
	if m.input == "" {
		m.input = "input"
	}
	if m.output == "" {
		m.output = "output"
	}
	return m, nil
}

// Loader — detect.LoadFunc для detect.NewLoader.
func Loader(cfg Config) detect.LoadFunc {
	return func(ctx context.Context) (detect.Model, error) {
		return New(cfg)
	}
}

// Run выполняет один прямой проход и копирует выход до освобождения тензора.
func (m *Model) Run(ctx context.Context, in detect.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, detect.ErrNotReady
	}

	inputTensor, err := ort.NewTensor(in.Shape, in.Data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputValues, err := m.session.Run(map[string]*ort.Value{
		m.input: inputTensor,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	defer func() {
		for _, v := range outputValues {
			v.Destroy()
		}
	}()

	outputValue, ok := outputValues[m.output]
	if !ok {
		return nil, fmt.Errorf("output %q not found", m.output)
	}
	data, err := ort.GetTensorData[float32](outputValue)
	if err != nil {
		return nil, fmt.Errorf("output data: %w", err)
	}
	return append([]float32(nil), data...), nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.engine != nil {
		m.engine.Destroy()
		m.engine = nil
	}
	return nil
}
