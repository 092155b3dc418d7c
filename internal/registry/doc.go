// ABOUTME: Package doc for the external registry proxy
// ABOUTME: Documents the auth-negotiation behavior

// Package registry proxies identity lookups to the external national
// registry. The registry's expected secret transport varies between
// deployments, so the client negotiates: it tries a fixed list of
// header and query encodings of the shared secret, advancing only past
// failures that look like auth rejections.
package registry
