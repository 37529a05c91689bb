// Package config builds the map-maker configuration documents of a skyloop
// run and loads the run parameters.
//
// # Documents
//
// Each pass of the map-maker reads a configuration document. Documents form
// a parent chain: the first-pass document (conf0) starts with the user's base
// configuration and adds the fixed first-pass overrides; every later document
// includes conf0 and adds the fixed later-pass overrides followed by the
// lifecycle overrides accumulated so far. The nearest layer wins when a key
// is resolved:
//
//	conf0:  ^/star/share/smurf/dimmconfig.lis
//	        numiter=1
//	        exportclean=1
//	        ...
//	conf1:  ^/tmp/skyloop_x/conf0
//	        exportclean=0
//	        importsky=ref
//	        ast.zero_niter=-1
//
// A document is only written when its content differs from the previous
// derived one.
//
// # Parameters
//
// Params holds the run parameters. A YAML parameter file is checked against
// a CUE schema, command-line flags are layered over it, and the merged
// struct is validated with validator tags. Env locates the external tools.
package config
