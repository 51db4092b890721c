// Package vm implements the Lark interpreter: a NaN-boxed value model, a
// handle-based garbage-collected heap over a pluggable allocator, a
// class/method registry with interned selectors, and a fiber bytecode
// engine behind a small embedding facade.
//
// A host embeds the VM by constructing one with NewVM, binding foreign
// methods with DefineMethod and DefineStaticMethod, and feeding it source
// through Interpret (or precompiled modules through InterpretModule).
// Every VM instance is fully isolated and must be released with Free.
package vm
