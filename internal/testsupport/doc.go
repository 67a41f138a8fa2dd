// Package testsupport provides shared fixtures for chatlens tests.
package testsupport
