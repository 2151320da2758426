// Package probe is the acquisition core for an ultrasound probe.
//
// A Device owns the acquisition parameters, the current imaging mode, the
// frame buffers and their geometry, and the timestamp state. Parameter
// writes from the control path and frame callbacks from the transport are
// serialised through one mutex; transport calls and sink delivery happen
// outside it.
package probe
