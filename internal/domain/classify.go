package domain

import "strings"

// Kind tells whether a hostname is a registrable (apex) domain or sits below one.
type Kind int

const (
	KindApex Kind = iota
	KindSubdomain
)

func (k Kind) String() string {
	if k == KindApex {
		return "apex"
	}
	return "subdomain"
}

// MultiLabelSuffixes lists public suffixes made of more than one label.
// Classify checks them in order, so keep longer suffixes before any suffix
// they end with.
var MultiLabelSuffixes = []string{
	"co.uk", "org.uk", "me.uk", "ac.uk", "gov.uk", "net.uk", "ltd.uk", "plc.uk",
	"com.au", "net.au", "org.au", "edu.au", "gov.au", "id.au",
	"co.nz", "net.nz", "org.nz",
	"co.jp", "ne.jp", "or.jp",
	"co.kr", "or.kr",
	"co.in", "net.in", "org.in",
	"co.za", "org.za",
	"co.il", "org.il",
	"com.br", "net.br", "org.br",
	"com.mx", "org.mx",
	"com.ar", "com.co", "com.pe",
	"com.cn", "net.cn", "org.cn",
	"com.hk", "com.sg", "com.my", "com.ph", "com.tw",
	"com.tr", "com.ua", "com.pl", "com.es",
}

// Classify decides whether hostname is an apex domain or a subdomain. It
// expects a hostname already normalized by NormalizeHostname.
func Classify(hostname string) Kind {
	for _, suffix := range MultiLabelSuffixes {
		if rest, ok := strings.CutSuffix(hostname, "."+suffix); ok {
			if strings.Contains(rest, ".") {
				return KindSubdomain
			}
			return KindApex
		}
	}

	if strings.Count(hostname, ".") == 1 {
		return KindApex
	}
	return KindSubdomain
}
