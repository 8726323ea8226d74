// Package server wires the trainer API together.
//
// NewServer builds the store, model cache, job runner and every domain
// service against one database, and registers the authenticators:
//
//   - authn: username and password, exchanged for a token
//   - authn-jwt: HS256 API tokens checked by JWTMiddleware
//
// Routes are added by the endpoints subpackage:
//
//	srv, err := server.NewServer(cfg, server.Options{DB: db, SecretKey: key, Logger: logger})
//	endpoints.RegisterAll(srv)
//	err = srv.Start(ctx)
//
// Start serves HTTP, runs the background job workers and watches the
// MedCAT config file until the context is cancelled.
package server
