// Package storetest contains a test suite that every ISharedStore configuration has to pass.
//
// Usage:
//
//	func TestFileStore(t *testing.T) {
//	    storetest.RunStoreTests(t, "file", fileStoreFactory, fileExists)
//	}
package storetest
