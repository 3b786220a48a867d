package reachability

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// NetworkSetter receives transport-level changes.
type NetworkSetter interface {
	SetNetwork(up bool)
}

// InterfaceObserver polls the OS interface table and reports whether a
// usable interface exists.
type InterfaceObserver struct {
	target   NetworkSetter
	interval time.Duration
	detect   func() bool
	logger   *log.Logger
}

// NewInterfaceObserver creates an observer that reports to target every
// interval (default: 3s).
func NewInterfaceObserver(target NetworkSetter, interval time.Duration, logger *log.Logger) *InterfaceObserver {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = log.Default().WithPrefix("reachability")
	}
	return &InterfaceObserver{
		target:   target,
		interval: interval,
		detect:   HasUsableInterface,
		logger:   logger,
	}
}

// Run reports the current state, then polls until ctx is cancelled.
func (o *InterfaceObserver) Run(ctx context.Context) {
	last := o.detect()
	o.target.SetNetwork(last)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			up := o.detect()
			if up != last {
				o.logger.Debug("interface state changed", "up", up)
				last = up
				o.target.SetNetwork(up)
			}
		}
	}
}

// HasUsableInterface reports whether any interface is up, is not loopback,
// and has a global unicast address.
func HasUsableInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && ipnet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}
