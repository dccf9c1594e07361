// Package mocks provides gomock implementations of the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./core/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=email_service_mock.go github.com/cs61as/coursesite/core EmailService
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_mock.go github.com/cs61as/coursesite/core/progress Repository,GraderFinder
