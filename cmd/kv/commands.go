package kv

import (
	"fmt"

	"github.com/ValentinKolb/shmkv/cmd/util"
	"github.com/ValentinKolb/shmkv/lib/store"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [name] [value]",
		Short: "Sets the value of a variable",
		Long: util.WrapString("Sets the value of a variable. Numbers, JSON arrays and JSON objects are " +
			"stored as such, everything else is stored as string."),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvStore.PutVar(args[0], util.ParseValue(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Gets the value of a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var def any
			if cmd.Flags().Changed("default") {
				raw, _ := cmd.Flags().GetString("default")
				def = util.ParseValue(raw)
			}
			value, err := kvStore.GetVar(args[0], def)
			if err != nil {
				return err
			}
			if value == nil {
				fmt.Printf("variable %q not found\n", args[0])
				return nil
			}
			fmt.Println(util.FormatValue(value))
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [name]",
		Short: "Checks if a variable exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := kvStore.HasVar(args[0])
			if err != nil {
				return err
			}
			if found {
				fmt.Printf("variable %q exists\n", args[0])
			} else {
				fmt.Printf("variable %q does not exist\n", args[0])
			}
			return nil
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [name]",
		Short: "Removes a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvStore.RemoveVar(args[0]); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [name] [delta]",
		Short: "Adds a number to a variable and prints the new value",
		Long:  util.WrapString("Adds a number to a variable and prints the new value. A missing variable counts as 0."),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := kvStore.AddToVar(args[0], util.ParseValue(args[1]))
			if err != nil {
				return err
			}
			fmt.Println(util.FormatValue(value))
			return nil
		},
	}
	bytesCmd = &cobra.Command{
		Use:   "bytes [value...]",
		Short: "Prints the size hint needed to store the given values",
		Long: util.WrapString("Prints the number of bytes that should be passed as --size to create a " +
			"segment that can hold the given values (parsed like 'kv put')."),
		Annotations: map[string]string{noStore: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]any, len(args))
			for i, arg := range args {
				values[i] = util.ParseValue(arg)
			}
			n, err := store.GetRequiredBytes(values...)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
)

func init() {
	getCmd.Flags().String("default", "", util.WrapString("Value to print if the variable does not exist"))
}
