// Package emb runs a sentence-embedding ONNX model locally.
package emb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Config locates the runtime, the model and its tokenizer.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	// InputNames defaults to input_ids and attention_mask. Add
	// token_type_ids for BERT-style exports that expect it.
	InputNames []string
	OutputName string
}

var (
	envMu    sync.Mutex
	envUsers int
)

// Encoder turns text into an L2-normalized mean-pooled embedding.
type Encoder struct {
	mu      sync.Mutex
	cfg     Config
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
}

// Init loads the shared library, the tokenizer and the model.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return errors.New("emb: model and tokenizer paths are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 128
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("emb: load tokenizer: %w", err)
	}
	if err := acquireEnvironment(cfg.OrtDLL); err != nil {
		return err
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("emb: create session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.tk = tk
	e.session = session
	return nil
}

func acquireEnvironment(dll string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envUsers == 0 {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("emb: initialize onnxruntime: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envUsers--
	if envUsers == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// Close releases the session. The runtime is torn down with its last user.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	_ = e.session.Destroy()
	e.session = nil
	releaseEnvironment()
}

// Encode embeds one text. Calls are serialized.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("emb: encoder is not initialized")
	}

	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("emb: tokenize: %w", err)
	}
	ids, mask, types := truncate(enc.Ids, enc.AttentionMask, enc.TypeIds, e.cfg.MaxSeqLen)
	n := int64(len(ids))
	if n == 0 {
		return nil, errors.New("emb: empty token sequence")
	}

	columns := map[string][]int{
		"input_ids":      ids,
		"attention_mask": mask,
		"token_type_ids": types,
	}
	inputs := make([]ort.Value, 0, len(e.cfg.InputNames))
	defer func() {
		for _, in := range inputs {
			_ = in.Destroy()
		}
	}()
	for _, name := range e.cfg.InputNames {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("emb: unsupported model input %q", name)
		}
		t, err := ort.NewTensor(ort.NewShape(1, n), toInt64(col, len(ids)))
		if err != nil {
			return nil, fmt.Errorf("emb: input tensor %s: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("emb: run model: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("emb: unexpected output type %T", outputs[0])
	}
	return pool(out.GetData(), out.GetShape(), mask)
}

func truncate(ids, mask, types []int, max int) ([]int, []int, []int) {
	if len(ids) <= max {
		return ids, mask, types
	}
	last := ids[len(ids)-1]
	ids = append([]int(nil), ids[:max]...)
	ids[max-1] = last
	if len(mask) > max {
		mask = mask[:max]
	}
	if len(types) > max {
		types = types[:max]
	}
	return ids, mask, types
}

func toInt64(v []int, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n && i < len(v); i++ {
		out[i] = int64(v[i])
	}
	return out
}

// pool averages token vectors under the attention mask, or passes a
// [1, hidden] sentence embedding through, then L2-normalizes.
func pool(data []float32, shape ort.Shape, mask []int) ([]float32, error) {
	var vec []float32
	switch len(shape) {
	case 2:
		vec = append([]float32(nil), data[:shape[1]]...)
	case 3:
		seq, hidden := int(shape[1]), int(shape[2])
		vec = make([]float32, hidden)
		var count float32
		for t := 0; t < seq; t++ {
			if t < len(mask) && mask[t] == 0 {
				continue
			}
			row := data[t*hidden : (t+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
			count++
		}
		if count == 0 {
			return nil, errors.New("emb: no attended tokens")
		}
		for j := range vec {
			vec[j] /= count
		}
	default:
		return nil, fmt.Errorf("emb: unexpected output shape %v", shape)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= inv
		}
	}
	return vec, nil
}
