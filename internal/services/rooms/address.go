package rooms

import "net"

// LoopbackAddress is advertised when no egress address can be discovered
const LoopbackAddress = "127.0.0.1"

// DiscoverAddress returns the local address the host would use to reach the
// internet. A UDP "connect" sends no packets; it only selects a route.
func DiscoverAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return LoopbackAddress
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return LoopbackAddress
	}
	return addr.IP.String()
}
