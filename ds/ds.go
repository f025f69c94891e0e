package ds

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/brutella/dnssd"
)

// V allows debug printing.
var v = func(string, ...interface{}) {}

// Query is a simple-form DNS-SD query.
type Query struct {
	Type   string
	Domain string
	Text   map[string][]string
}

const (
	dsTimeout  = 1 * time.Second // query timeout
	timeFormat = "15:04:05.000"
)

// Verbose installs f as the debug logger.
func Verbose(f func(string, ...interface{})) {
	v = f
}

func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		ok := false
		for _, want := range req[k] {
			if src[k] == want {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Parse parses a DNS-SD URI into a Query.
//
// URI form: dnssd://domain/_service._network/instance?reqkey=reqvalue
// Domain defaults to "local", the service type defaults to "_rmt._tcp",
// and missing "arch"/"os" text keys are filled from the local runtime.
// The instance path segment, if present, is ignored.
func Parse(uri string) (Query, error) {
	result := Query{
		Type:   "_rmt._tcp",
		Domain: "local",
	}

	u, err := url.Parse(uri)
	if err != nil {
		return result, fmt.Errorf("parsing dns-sd uri %q: %w", uri, err)
	}
	if u.Scheme != "dnssd" {
		return result, fmt.Errorf("%q is not a dnssd: uri", uri)
	}

	if u.Host != "" {
		result.Domain = u.Host
	}
	if svc, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/"); svc != "" {
		result.Type = svc
	}

	result.Text = u.Query()
	if len(result.Text["arch"]) == 0 {
		result.Text["arch"] = []string{runtime.GOARCH}
	}
	if len(result.Text["os"]) == 0 {
		result.Text["os"] = []string{runtime.GOOS}
	}

	return result, nil
}

// Lookup browses for a service matching q and returns its resolved
// address and port. It gives up after a short, fixed timeout; the
// rmt host-resolution step treats failure here as best-effort.
func Lookup(q Query) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dsTimeout)
	defer cancel()

	service := fmt.Sprintf("%s.%s.", strings.Trim(q.Type, "."), strings.Trim(q.Domain, "."))
	v("ds: browsing for %s", service)

	respCh := make(chan *dnssd.BrowseEntry, 1)

	addFn := func(e dnssd.BrowseEntry) {
		v("%s\tAdd\t%s\t%s\t%s\t%s (%s)", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name, e.IPs)
		if required(e.Text, q.Text) {
			respCh <- &e
		}
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		v("%s\tRmv\t%s\t%s\t%s\t%s", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name)
	}

	go func() {
		if err := dnssd.LookupType(ctx, service, addFn, rmvFn); err != nil {
			v("ds: lookup type: %v", err)
		}
		respCh <- nil
	}()

	e := <-respCh
	if e == nil {
		return "", "", fmt.Errorf("ds: no service matched %s", service)
	}
	if len(e.IPs) == 0 {
		return "", "", fmt.Errorf("ds: %s resolved with no addresses", service)
	}
	if len(e.IPs) > 1 {
		v("ds: %s resolved to more than one address, using the first", service)
	}

	return e.IPs[0].String(), strconv.Itoa(e.Port), nil
}
