package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/tkjaer/fibinfo/internal/shared"
)

// jsonRecord wraps every emitted object with its kind, one per line.
type jsonRecord struct {
	Record string `json:"record"`
	Data   any    `json:"data"`
}

// JSONOutput writes records as JSON lines to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		// Output to stdout
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file:     f,
		enc:      json.NewEncoder(f),
		toStdout: false,
	}, nil
}

func (j *JSONOutput) write(kind string, v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(jsonRecord{Record: kind, Data: v})
}

func (j *JSONOutput) StartRun(info shared.RunInfo) {
	j.write("run", info)
}

func (j *JSONOutput) Lookup(rec *shared.LookupRecord) {
	j.write("lookup", rec)
}

func (j *JSONOutput) DeviceRoutes(rec *shared.DeviceRoutes) {
	j.write("device_routes", rec)
}

func (j *JSONOutput) Device(rec *shared.DeviceRecord) {
	j.write("device", rec)
}

func (j *JSONOutput) ScanSummary(sum *shared.ScanSummary) {
	j.write("scan", sum)
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
