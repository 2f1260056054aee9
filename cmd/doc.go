// Package cmd provides the CLI commands for the ODIS services.
//
// # Commands
//
// signer: Runs one threshold signer. Authenticates requests, enforces
// quota against PostgreSQL, and answers with partial BLS signatures.
//
//	go run ./cmd/signer --config=signer.yaml
//	go run ./cmd/signer --addr=:8080 --key-share=@share.hex --rpc=https://forno.celo.org
//
// combiner: Runs the client-facing combiner that fans requests out to
// the signers and aggregates their partial signatures.
//
//	go run ./cmd/combiner --config=combiner.yaml
//	go run ./cmd/combiner --public-shares=@public.hex --signer=http://s0:8080 --signer=http://s1:8080
//
// keygen: Deals a t-of-n threshold key for local development.
//
//	go run ./cmd/keygen --threshold=2 --shares=3
//
// # Configuration
//
// Both services support YAML configuration files via the --config flag.
// Command-line flags override config file values.
//
// Example signer config:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	key_share: "@/etc/odis/share.hex"
//	database:
//	  host: "localhost"
//	  port: 5432
//	  user: "odis"
//	  password: "odis"
//	  database: "odis"
//	  ssl_mode: "disable"
//	chain:
//	  rpc_url: "https://forno.celo.org"
//	  stable_token: "0x765DE816845861e75A25fCA122bb6898B8B1282a"
//	  attestations: "0xdC553892cdeeeD9f575aa0FBA099e5847fd88D20"
//	  accounts: "0x7d21685C17607338b313a7174bAb6620baD0aaB7"
//	quota:
//	  unverified_base_quota: 10
//	  verified_bonus_quota: 30
//	  per_transaction_quota: 2
//	min_stable_balance: "10000000000000000"
//
// Example combiner config:
//
//	listen_addr: ":8081"
//	public_shares: "@/etc/odis/public.hex"
//	signers:
//	  - "http://signer-0:8080"
//	  - "http://signer-1:8080"
//	  - "http://signer-2:8080"
//	signer_timeout: 10s
//	block_drift: 5
package cmd
