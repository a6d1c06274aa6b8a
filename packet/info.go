package packet

// ConnectInfo parameters sent by client with CONNECT.
// Only Verbose, Headers, Echo and NoResponders affect broker behaviour
type ConnectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	Headers      bool   `json:"headers,omitempty"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang,omitempty"`
	Version      string `json:"version,omitempty"`
	Protocol     int    `json:"protocol,omitempty"`
	Echo         bool   `json:"echo"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
	NoResponders bool   `json:"no_responders,omitempty"`
}

// DefaultConnectInfo values used until client sends CONNECT
// and for fields CONNECT omits
func DefaultConnectInfo() ConnectInfo {
	return ConnectInfo{
		Echo: true,
	}
}

// ServerInfo sent to client on connect and with every heartbeat
type ServerInfo struct {
	ServerID     string   `json:"server_id"`
	ServerName   string   `json:"server_name"`
	Version      string   `json:"version"`
	GoVersion    string   `json:"go,omitempty"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Headers      bool     `json:"headers"`
	MaxPayload   int      `json:"max_payload"`
	Proto        int      `json:"proto"`
	ClientID     uint64   `json:"client_id,omitempty"`
	ClientIP     string   `json:"client_ip,omitempty"`
	AuthRequired bool     `json:"auth_required,omitempty"`
	TLSRequired  bool     `json:"tls_required,omitempty"`
	ConnectURLs  []string `json:"connect_urls,omitempty"`
	LameDuckMode bool     `json:"ldm,omitempty"`
	Cluster      string   `json:"cluster,omitempty"`
}

// ForClient returns copy of the template personalized for given client
func (s ServerInfo) ForClient(id uint64, ip string) ServerInfo {
	s.ClientID = id
	s.ClientIP = ip

	if len(s.ConnectURLs) > 0 {
		urls := make([]string, len(s.ConnectURLs))
		copy(urls, s.ConnectURLs)
		s.ConnectURLs = urls
	}

	return s
}
