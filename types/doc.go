// Package types provides core types shared across the gdflow engine.
// This package has ZERO dependencies on other gdflow packages to avoid
// circular imports. All other packages should import types from here.
package types
