/*
Package smsverify issues SMS verification codes through a configurable set of SMS agents

Overview:

The verification service exposes an HTTP API that sends a short one-time code to a mobile
number and later checks the code a user types back in. Codes are sent through one of several
SMS agents (Clickatell, a mock provider, or anything registered at startup). When an agent
fails, the next agent on the configured alternate list is tried until the list is exhausted.

Verification state (mobile, code, deadline and the per-field validation rules) lives in a
Manager for the duration of a request. It is only written to the session store when the caller
explicitly pushes it, and only read back when the caller pulls it.

*/

package smsverify
