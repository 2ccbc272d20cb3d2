package banner

import (
	"fmt"

	"progressdb/pkg/config"
)

const banner = `
██████╗ ██████╗  ██████╗  ██████╗ ██████╗ ███████╗███████╗███████╗    ██████╗ ██████╗
██╔══██╗██╔══██╗██╔═══██╗██╔════╝ ██╔══██╗██╔════╝██╔════╝██╔════╝    ██╔══██╗██╔══██╗
██████╔╝██████╔╝██║   ██║██║  ███╗██████╔╝█████╗  ███████╗███████╗    ██║  ██║██████╔╝
██╔═══╝ ██╔══██╗██║   ██║██║   ██║██╔══██╗██╔══╝  ╚════██║╚════██║    ██║  ██║██╔══██╗
██║     ██║  ██║╚██████╔╝╚██████╔╝██║  ██║███████╗███████║███████║    ██████╔╝██████╔╝
╚═╝     ╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚══════╝╚══════╝╚══════╝    ╚═════╝ ╚═════╝
`

// Print writes the startup banner: bind address, storage directory,
// consistency bounds, and whether a bearer token is configured.
func Print(cfg config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:              %s\n", cfg.Addr())
	fmt.Printf("Storage directory:   %s\n", cfg.Directory)
	fmt.Printf("Consistency bound:   [%ds, %ds]\n", cfg.ConsistencyBoundMin, cfg.ConsistencyBoundMax)
	if cfg.Token != "" {
		fmt.Println("Bearer token:        configured")
	} else {
		fmt.Println("Bearer token:        MISSING")
	}
	if version != "" {
		fmt.Printf("Version:             %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST/GET /store/{key}          - put or get a value")
	fmt.Println("GET      /store?start=&end=    - range scan over visible keys")
	fmt.Println("POST     /stream/{name}        - publish a message to a topic")
	fmt.Println("GET      /stream/{name}        - subscribe (WebSocket upgrade)")
	fmt.Println("GET      /healthz, /readyz     - liveness and readiness probes")
	fmt.Println("GET      /metrics              - Prometheus metrics")
	fmt.Println("GET      /docs                 - API documentation")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -H 'Authorization: Bearer <token>' -X POST --data-binary 'hello' 'http://localhost%s/store/greeting'\n", cfg.Addr())
	fmt.Printf("curl -H 'Authorization: Bearer <token>' 'http://localhost%s/store/greeting'\n", cfg.Addr())
}
