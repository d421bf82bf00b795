// excepthook.go wires a Client into a HookSlot.

package bugsnag

import "context"

// Excepthook handles an uncaught panic. When AutoNotify is set it reports the
// panic synchronously as an unhandled error. The previously installed hook is
// always invoked afterwards; a panic in either step does not prevent the other.
func (c *Client) Excepthook(info ExcInfo) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.Configuration.logger().WithField("panic", r).Error("recovered panic while reporting uncaught exception")
			}
		}()
		if c.Configuration.AutoNotify {
			c.notify(context.Background(), info, notifyParams{
				reason:    ReasonUnhandledPanic,
				unhandled: true,
				sync:      true,
			}, nil)
		}
	}()

	c.mu.Lock()
	prev := c.prevHook
	c.mu.Unlock()
	prev.invokeIsolated(info)
}

// InstallSysHook installs Excepthook into the client's hook slot, saving the
// hook it replaces. Calling it again while installed does nothing.
func (c *Client) InstallSysHook() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.installed {
		return
	}
	c.hook = NewHook(c.Excepthook)
	c.prevHook = c.slot.Set(c.hook)
	c.installed = true
}

// UninstallSysHook restores the hook that was installed before
// InstallSysHook. Excepthook keeps chaining to that hook until the next
// install. Calling it while not installed does nothing.
func (c *Client) UninstallSysHook() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.installed {
		return
	}
	c.slot.Set(c.prevHook)
	c.installed = false
}

// Installed reports whether the client is installed as the exception hook.
func (c *Client) Installed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed
}
