package domain

import "strings"

// DNSRecord is a record the tenant must create at their DNS host.
type DNSRecord struct {
	Type  string
	Name  string
	Value string
}

// Edge describes where custom hostnames must point to reach the hosting edge.
type Edge struct {
	IPv4        string
	CNAMETarget string
}

// VerifyLabel returns the well-known TXT label for product, e.g. "_acme-verify".
func VerifyLabel(product string) string {
	return "_" + product + "-verify"
}

// VerificationName returns the fully qualified TXT name checked for hostname.
func VerificationName(product, hostname string) string {
	return VerifyLabel(product) + "." + hostname
}

// PresentedRecords returns the TXT ownership record plus the routing record
// selected by Classify: A at the apex, CNAME for subdomains.
func PresentedRecords(rec DomainRecord, product string, edge Edge) []DNSRecord {
	records := []DNSRecord{{
		Type:  "TXT",
		Name:  VerifyLabel(product),
		Value: rec.VerificationToken,
	}}

	if Classify(rec.Hostname) == KindApex {
		return append(records, DNSRecord{Type: "A", Name: "@", Value: edge.IPv4})
	}

	leftmost, _, _ := strings.Cut(rec.Hostname, ".")
	return append(records, DNSRecord{Type: "CNAME", Name: leftmost, Value: edge.CNAMETarget})
}
