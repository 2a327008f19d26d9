// Package backend exposes the Calendis backend (authentication, documents and
// file storage) through an explicitly constructed Service.
//
// A Service is created once at startup for a Mode and handed to the
// components that need it. Accessors initialise their client lazily and only
// once; the mode decides which accessors are available at all.
package backend
