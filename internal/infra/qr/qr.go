// Package qr produces the join link players scan from the host display.
package qr

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/skip2/go-qrcode"
)

const size = 320 // mobile-friendly size

// Info is the connection info shown next to the code.
type Info struct {
	QRCode  string `json:"qr_code"`
	URL     string `json:"url"`
	LocalIP string `json:"local_ip"`
}

// Provider builds join URLs. When no public URL is configured the URL points
// at this machine's LAN address so phones on the same network can reach it.
type Provider struct {
	publicURL string
	joinPort  string
	joinPath  string
	localIP   func() string
}

func NewProvider(publicURL, joinPort, joinPath string) *Provider {
	if joinPath == "" {
		joinPath = "/join"
	}
	if !strings.HasPrefix(joinPath, "/") {
		joinPath = "/" + joinPath
	}
	return &Provider{
		publicURL: strings.TrimSuffix(publicURL, "/"),
		joinPort:  joinPort,
		joinPath:  joinPath,
		localIP:   LocalIP,
	}
}

func (p *Provider) JoinURL() (url, localIP string) {
	localIP = p.localIP()
	if p.publicURL != "" {
		return p.publicURL + p.joinPath, localIP
	}
	host := localIP
	if p.joinPort != "" {
		host = net.JoinHostPort(localIP, p.joinPort)
	}
	return "http://" + host + p.joinPath, localIP
}

// PNG encodes the join URL as a QR code image.
func (p *Provider) PNG() ([]byte, error) {
	url, _ := p.JoinURL()
	return qrcode.Encode(url, qrcode.Medium, size)
}

// Info returns the QR code as a data URL together with the join URL.
func (p *Provider) Info() (Info, error) {
	url, ip := p.JoinURL()
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return Info{}, fmt.Errorf("encode qr: %w", err)
	}
	return Info{
		QRCode:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		URL:     url,
		LocalIP: ip,
	}, nil
}

// LocalIP reports the address of the interface used for outbound traffic.
// No packet is sent; dialing UDP only selects a route.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "localhost"
}
