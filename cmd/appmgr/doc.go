// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// appmgr is the command-line client for package archives and the
// appmgrd daemon.
//
// Archive commands work offline:
//
//	appmgr pack --manifest manifest.yaml --image image.tar.zst --icon icon.png --license LICENSE.md
//	appmgr inspect info hello.s9pk
//	appmgr inspect hash hello.s9pk
//
// Daemon commands talk to appmgrd over its Unix socket (--socket,
// $APPMGR_SOCKET, or paths.socket from $APPMGR_CONFIG):
//
//	appmgr install bitcoind@>=0.21.0 --watch
//	appmgr list
//	appmgr cleanup bitcoind
//
// Exit status is 0 on success, 2 for invalid input, 3 when a package
// is not found, 4 on a state conflict, 5 when the daemon is not
// reachable, 6 when the socket is not accessible and 1 otherwise.
package main
