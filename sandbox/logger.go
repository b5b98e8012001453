package sandbox

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "sandbox")
