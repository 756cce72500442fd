// Package n6 wraps the N6 egress device the data plane writes decapsulated,
// NAT'd IP packets to and reads return traffic from.
package n6

import (
	"fmt"
	"io"
	"net"

	"github.com/songgao/water"
)

// Device is anything the N6 egress/ingress path can read and write packets
// through. *water.Interface and the in-memory pipeDevice both satisfy it.
type Device interface {
	io.ReadWriteCloser
	Name() string
}

type tunDevice struct {
	ifce *water.Interface
	name string
}

func (d *tunDevice) Read(p []byte) (int, error)  { return d.ifce.Read(p) }
func (d *tunDevice) Write(p []byte) (int, error) { return d.ifce.Write(p) }
func (d *tunDevice) Close() error                { return d.ifce.Close() }
func (d *tunDevice) Name() string                { return d.name }

// OpenExisting opens a TUN device that already exists under the given name.
// Creating, addressing and NAT/forwarding-enabling the interface is the
// deploying operator's job (§6/§7) — this function only attaches to it.
func OpenExisting(name string) (Device, error) {
	if name == "" {
		return nil, fmt.Errorf("n6: device name is empty")
	}
	if _, err := net.InterfaceByName(name); err != nil {
		return nil, fmt.Errorf("n6: tun interface %q not found (must be created beforehand): %w", name, err)
	}

	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = name
	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("n6: open tun %q: %w", name, err)
	}
	return &tunDevice{ifce: ifce, name: name}, nil
}
