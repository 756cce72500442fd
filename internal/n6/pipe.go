package n6

import "io"

// pipeDevice is an in-memory Device backed by an io.Pipe, letting tests
// exercise the N6 read/write path without a real TUN interface.
type pipeDevice struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	name string
}

// NewPipeDevice returns a connected pair of in-memory Devices: writes to one
// are readable from the other, in both directions.
func NewPipeDevice(name string) (a, b Device) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeDevice{r: ar, w: aw, name: name + "-a"},
		&pipeDevice{r: br, w: bw, name: name + "-b"}
}

func (p *pipeDevice) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeDevice) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeDevice) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}
func (p *pipeDevice) Name() string { return p.name }
