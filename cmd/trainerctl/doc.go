// Command trainerctl runs the MedCAT trainer API server and administers its
// database.
//
// # Architecture
//
// The server is organized into several packages:
//
//   - pkg/server: HTTP server, routing and service wiring
//   - pkg/server/endpoints: REST API endpoint handlers
//   - pkg/server/store: store interfaces and their gorm implementation
//   - pkg/modelcache: shared CDB, Vocab and CAT caches
//   - pkg/annotation: document preparation, annotation sync and training
//   - pkg/export, pkg/deployment: annotation export and deployment archives
//   - pkg/dataset: CSV dataset upload
//   - pkg/metrics: project metrics reports
//   - pkg/jobs: background task queue
//   - pkg/authenticator: password and token authentication
//   - pkg/audit: audit logging
//   - pkg/config: configuration management
//
// # Quick Start
//
//	# Run database migrations
//	trainerctl db migrate
//
//	# Create an administrator
//	trainerctl user create admin --superuser
//
//	# Start the server
//	export TRAINER_SECRET_KEY=$(openssl rand -hex 32)
//	trainerctl server --no-migrate
//
// # Environment
//
//   - DATABASE_URL: postgres connection URL (required)
//   - TRAINER_SECRET_KEY: key signing API tokens (required by server)
//   - TRAINER_CONFIG_PATH: directory holding trainer.yml
//   - AUDIT_DATABASE_URL: database receiving audit messages
package main
