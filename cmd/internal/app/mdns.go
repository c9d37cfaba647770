package app

import (
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

// mdnsService is the DNS-SD service type advertised on the LAN.
const mdnsService = "_scrblit._tcp"

// advertiseMDNS announces the server so LAN clients can discover the websocket endpoint.
// The returned func stops the responder.
func advertiseMDNS(cfg Config, addr net.Addr, logger Logger) (func(), error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("mdns: unsupported listen address %T", addr)
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("mdns: hostname: %w", err)
	}

	var ips []net.IP
	if !tcp.IP.IsUnspecified() && tcp.IP != nil {
		ips = []net.IP{tcp.IP}
	}

	txt := []string{"path=/ws", "proto=scrblit.v1"}
	svc, err := mdns.NewMDNSService(cfg.MDNSInstance, mdnsService, "", host+".", tcp.Port, ips, txt)
	if err != nil {
		return nil, fmt.Errorf("mdns: service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("mdns: server: %w", err)
	}

	logger.Info("mdns.advertise", "instance", cfg.MDNSInstance, "service", mdnsService, "port", tcp.Port)
	return func() {
		if err := server.Shutdown(); err != nil {
			logger.Info("mdns.shutdown.fail", "err", err)
		}
	}, nil
}
