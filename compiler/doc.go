/*

Process of optimization

Machine IR Text ->
	parse ->
Control Flow Graph (mach) ->
	dom ->
Dominator Tree ->
	condopt ->
Adjusted Control Flow Graph ->
	format ->
Machine IR Text

condopt aligns pairs of immediate compares so a later CSE pass can
remove the duplicate. Everything else here exists to feed it.

*/
package compiler
