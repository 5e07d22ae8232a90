package parser

import (
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/scope"
)

// hostsIgnored are loopback/broadcast names every hosts file declares
var hostsIgnored = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"local":                 true,
	"broadcasthost":         true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
	"ip6-localnet":          true,
	"ip6-mcastprefix":       true,
	"ip6-allnodes":          true,
	"ip6-allrouters":        true,
	"ip6-allhosts":          true,
	"0.0.0.0":               true,
}

// parseHostsLine parses "0.0.0.0 host [host...]" or bare "host" lines into
// domain-anchored block filters
func (p *Parser) parseHostsLine(line models.RawLine) []models.Filter {
	text := line.Text
	if idx := strings.IndexByte(text, '#'); idx != -1 {
		if strings.TrimSpace(text[:idx]) == "" {
			p.stats.Total++
			p.stats.Comments++
			return nil
		}
		text = text[:idx]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		p.stats.Blank++
		return nil
	}
	p.stats.Total++

	hosts := fields
	if net.ParseIP(fields[0]) != nil {
		hosts = fields[1:]
	}

	var filters []models.Filter
	for _, h := range hosts {
		host := scope.NormalizeDomain(h)
		if hostsIgnored[host] {
			continue
		}
		if host == "" || net.ParseIP(host) != nil {
			p.malformed(line.Source, "invalid hostname %q: %s", h, strings.TrimSpace(line.Text))
			continue
		}
		if _, ok := dns.IsDomainName(host); !ok || !isHostname(host) {
			p.malformed(line.Source, "invalid hostname %q: %s", h, strings.TrimSpace(line.Text))
			continue
		}
		filters = append(filters, models.NewNetwork(&models.NetworkFilter{
			Raw:     "||" + host + "^",
			Pattern: host + "^",
			Anchors: models.Anchors{Domain: true},
			Source:  line.Source,
		}))
	}
	p.stats.Network += len(filters)
	return filters
}

// isHostname reports whether host only uses hostname characters.
// dns.IsDomainName accepts any escaped label, hosts files never need those.
func isHostname(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.', c == '_':
		default:
			return false
		}
	}
	return true
}
