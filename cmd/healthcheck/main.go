// Command healthcheck probes a running server's /readyz endpoint and exits
// non-zero when it is not ready. Meant for container HEALTHCHECK lines.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	url := flag.String("url", "http://127.0.0.1:8080/readyz", "readiness endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(*url)
	req.Header.SetMethod(fasthttp.MethodGet)
	client := &fasthttp.Client{Name: "dealerchat-healthcheck", ReadTimeout: *timeout, WriteTimeout: *timeout}
	if err := client.DoTimeout(req, res, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if res.StatusCode() != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "not ready: %d %s\n", res.StatusCode(), res.Body())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%s\n", res.Body())
}
